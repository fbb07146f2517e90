// Package main implements the netwatch CLI.
package main

func main() {
	Execute()
}
