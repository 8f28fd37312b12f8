package main

import "github.com/iksnae/devtrail/cmd"

func main() {
	cmd.Execute()
}
