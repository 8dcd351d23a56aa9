// Command go-census counts the nodes advertised under each tracked state and
// alerts when a population leaves its bounds.
package main

import "github.com/ozanturksever/go-census/cmd/go-census/cmd"

func main() {
	cmd.Execute()
}
