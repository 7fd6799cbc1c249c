package main

import (
	"fmt"

	"github.com/tingzhh2025/aisecurityvision/internal/auth"
)

func main() {
	hash, _ := auth.HashPassword("adminpassword")
	fmt.Println(hash)
}
