package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge-project/relaybridge/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "relaybridge",
	})
}

// handleStatus returns the relay connection state, counters, and host
// information.
func (s *Server) handleStatus(c *gin.Context) {
	stats := s.conn.Stats()
	sysInfo := util.GetSystemInfo()

	c.JSON(http.StatusOK, gin.H{
		"connection":      stats,
		"client_name":     s.cfg.MultiChat.ClientName(),
		"hub_url":         s.cfg.MultiChat.URL,
		"hostname":        sysInfo.Hostname,
		"os":              sysInfo.OS,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
	})
}

// handleHistory returns the most recent relayed messages.
func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message history is disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 1000"})
			return
		}
		limit = parsed
	}

	messages, err := s.history.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(messages),
		"messages": messages,
	})
}

// handleConfig returns the relay configuration with the shared secret
// redacted.
func (s *Server) handleConfig(c *gin.Context) {
	m := s.cfg.MultiChat
	c.JSON(http.StatusOK, gin.H{
		"multichat-url": m.URL,
		"multichat-key": "[redacted]",
		"server-name":   m.ServerName,
		"listen":        m.Listen,
		"post":          m.Post,
		"ignore-prefix": m.IgnorePrefix,
		"lang":          m.Lang,
	})
}

// handleReconnect triggers an immediate reconnect attempt. While
// connecting or registered this is a no-op.
func (s *Server) handleReconnect(c *gin.Context) {
	state := s.conn.State()
	s.conn.Reconnect()
	c.JSON(http.StatusOK, gin.H{
		"previous_state": state.String(),
		"state":          s.conn.State().String(),
	})
}
