package main

import "github.com/thural/QuietSpace-Frontend-sub010/internal/cli"

func main() {
	cli.Execute()
}
