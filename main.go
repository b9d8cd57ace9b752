package main

import "topiclens/internal/app"

func main() {
	app.Main()
}
