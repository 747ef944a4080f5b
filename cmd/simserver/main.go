package main

import "github.com/eleven-am/livescribe/internal/bootstrap"

func main() {
	bootstrap.RunServer()
}
