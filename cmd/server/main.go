package main

import "detailpay/internal/app/server"

func main() {
	server.Run()
}
