package resp

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope — единый формат ответа всех эндпоинтов API.
type Envelope struct {
	Status      string `json:"status"`      // success | error
	Code        int    `json:"code"`        // обычно HTTP-статус
	Description string `json:"description"` // человекочитаемое
	Data        any    `json:"data"`        // object | array | null
}

func Success(c *gin.Context, httpCode int, description string, data any) {
	c.JSON(httpCode, Envelope{
		Status:      "success",
		Code:        httpCode,
		Description: description,
		Data:        data,
	})
}

func OK(c *gin.Context, data any) {
	Success(c, http.StatusOK, "ok", data)
}

func Created(c *gin.Context, data any) {
	Success(c, http.StatusCreated, "created", data)
}

func Error(c *gin.Context, httpCode int, description string) {
	c.JSON(httpCode, Envelope{
		Status:      "error",
		Code:        httpCode,
		Description: description,
		Data:        nil,
	})
}

// Confirm — ответ soft gate: переход не выполнен, требуется явное
// подтверждение (повтор с force=true).
func Confirm(c *gin.Context, description string, data any) {
	c.JSON(http.StatusConflict, Envelope{
		Status:      "needs_confirmation",
		Code:        http.StatusConflict,
		Description: description,
		Data:        data,
	})
}
