package main

import "github.com/brensch/pscparquet/cmd"

func main() {
	cmd.Execute()
}
