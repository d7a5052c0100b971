package handler

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}
