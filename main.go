package main

import "karte-backend/cmd"

func main() {
	cmd.Execute()
}
