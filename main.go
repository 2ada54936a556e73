package main

import "github.com/kathiravelulab/atlastrace/cmd"

func main() {
	cmd.Execute()
}
