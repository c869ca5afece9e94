package main

import (
	"go.uber.org/fx"

	"github.com/unipro/procurement/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
