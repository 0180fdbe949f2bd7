// Travelgate - travel and expense compliance engine
// Evaluate. Snapshot. Route exceptions.
package main

func main() {
	Execute()
}
