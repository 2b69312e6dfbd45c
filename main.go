package main

import "reviewbot/internal/app"

func main() {
	app.Main()
}
