package main

import "housing-backend/internal/cli"

func main() {
	cli.Execute()
}
