package main

import "github.com/pders01/rollguard/cmd"

func main() {
	cmd.Execute()
}
