package main

import "github.com/fylein/fyle-integrations-app-e2e-tests/cmd"

func main() {
	cmd.Execute()
}
