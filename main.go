package main

import "github.com/arung-agamani/pgtun/cmd"

func main() {
	cmd.Execute()
}
