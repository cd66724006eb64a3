package handler

import (
	"log"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	regNoPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,31}$`)
	validateOnce sync.Once
)

// registerValidators adds the "regno" tag to gin's validator.
func registerValidators() {
	validateOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err := v.RegisterValidation("regno", func(fl validator.FieldLevel) bool {
			return regNoPattern.MatchString(fl.Field().String())
		}); err != nil {
			log.Printf("handler: register regno validator: %v", err)
		}
	})
}
