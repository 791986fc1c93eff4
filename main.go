package main

import "github.com/kiesman99/dynstitch/cmd"

func main() {
	cmd.Execute()
}
