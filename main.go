package main

import "clinic-sync/cmd"

func main() {
	cmd.Execute()
}
