package server

import "github.com/gin-gonic/gin"

// envelope is the {success, response|data} body every endpoint answers with.
type envelope struct {
	Success  bool        `json:"success"`
	Response interface{} `json:"response,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Analysis interface{} `json:"analysis,omitempty"`
}

func failure(msg string) envelope {
	return envelope{Success: false, Response: msg}
}

func respondFailure(c *gin.Context, status int, msg string) {
	c.JSON(status, failure(msg))
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}
