package main

import "recurring-donations/cmd"

func main() {
	cmd.Execute()
}
