package api

import (
	"net/http"
	"strconv"
	"strings"

	"guardian-api/internal/response"

	"github.com/gin-gonic/gin"
)

// Discord ids are 64-bit snowflakes. They travel as strings in JSON and
// paths so JavaScript clients do not lose precision.

func parseSnowflake(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil && id > 0
}

// pathID reads a snowflake path parameter, writing a 400 if it is invalid
func pathID(c *gin.Context, name string) (int64, bool) {
	id, ok := parseSnowflake(c.Param(name))
	if !ok {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid "+name)
	}
	return id, ok
}

// bodyID validates a snowflake taken from a request body
func bodyID(c *gin.Context, name, value string) (int64, bool) {
	id, ok := parseSnowflake(value)
	if !ok {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid "+name)
	}
	return id, ok
}

// optionalBodyID is bodyID for fields that may be omitted
func optionalBodyID(c *gin.Context, name, value string) (int64, bool) {
	if strings.TrimSpace(value) == "" {
		return 0, true
	}
	return bodyID(c, name, value)
}

// bindJSON binds the request body, writing a 400 on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return false
	}
	return true
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}

func snowflakeStrings(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
