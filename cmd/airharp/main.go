// Command airharp plays a gesture-driven virtual harp and renders, fits and
// analyzes its sound offline.
package main

func main() {
	Execute()
}
