package main

import (
	"fmt"

	"go-battlewatch/pkg/version"
)

func main() {
	info := version.Get()
	fmt.Println(info.String())
	fmt.Printf("go: %s  platform: %s\n", info.GoVersion, info.Platform)
}
