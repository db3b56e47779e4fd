package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/linefollow/pkg/follower"
)

// ThresholdResponse reports the current threshold
type ThresholdResponse struct {
	Value   int `json:"value"`
	Percent int `json:"percent"`
}

// ThresholdRequest sets the threshold either directly (0-255) or as a
// slider percentage (0-100). Exactly one must be given.
type ThresholdRequest struct {
	Value   *int `json:"value"`
	Percent *int `json:"percent"`
}

// LinesRequest drives the modem control lines. Omitted lines are left as is.
type LinesRequest struct {
	DTR *bool `json:"dtr"`
	RTS *bool `json:"rts"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// portError maps a port operation failure to a response
func portError(c *fiber.Ctx, err error) error {
	if errors.Is(err, follower.ErrNoPort) {
		return errorJSON(c, fiber.StatusConflict, err.Error())
	}
	return errorJSON(c, fiber.StatusInternalServerError, err.Error())
}

// handleStatus returns the session snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.session.State())
}

func (s *Server) thresholdResponse() ThresholdResponse {
	return ThresholdResponse{
		Value:   s.session.Threshold.Value(),
		Percent: s.session.Threshold.Percent(),
	}
}

// handleGetThreshold returns the threshold
func (s *Server) handleGetThreshold(c *fiber.Ctx) error {
	return c.JSON(s.thresholdResponse())
}

// errThreshold is a rejected threshold request
type errThreshold string

func (e errThreshold) Error() string { return string(e) }

// applyThreshold validates req and stores it; the next frame uses it
func (s *Server) applyThreshold(req ThresholdRequest) (ThresholdResponse, error) {
	switch {
	case req.Value != nil && req.Percent != nil:
		return ThresholdResponse{}, errThreshold("give value or percent, not both")
	case req.Value != nil:
		if *req.Value < follower.MinThreshold || *req.Value > follower.MaxThreshold {
			return ThresholdResponse{}, errThreshold("value must be between 0 and 255")
		}
		s.session.Threshold.Set(*req.Value)
	case req.Percent != nil:
		if *req.Percent < 0 || *req.Percent > 100 {
			return ThresholdResponse{}, errThreshold("percent must be between 0 and 100")
		}
		s.session.Threshold.SetPercent(*req.Percent)
	default:
		return ThresholdResponse{}, errThreshold("value or percent is required")
	}

	res := s.thresholdResponse()
	s.log.Info("threshold changed", "value", res.Value, "percent", res.Percent)
	return res, nil
}

// handleSetThreshold updates the threshold from a REST request
func (s *Server) handleSetThreshold(c *fiber.Ctx) error {
	var req ThresholdRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	res, err := s.applyThreshold(req)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(res)
}

// handleControl answers threshold frames sent on /ws/status, so a slider
// can follow the live feed without a REST round trip.
func (s *Server) handleControl(data []byte) (any, error) {
	var req ThresholdRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errThreshold("invalid body")
	}
	return s.applyThreshold(req)
}

// handleModem returns the modem line states
func (s *Server) handleModem(c *fiber.Ctx) error {
	st, err := s.session.ModemStatus()
	if err != nil {
		return portError(c, err)
	}
	return c.JSON(st)
}

// handleLines sets DTR and/or RTS and returns the resulting modem status
func (s *Server) handleLines(c *fiber.Ctx) error {
	var req LinesRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.DTR == nil && req.RTS == nil {
		return errorJSON(c, fiber.StatusBadRequest, "dtr or rts is required")
	}

	if req.DTR != nil {
		if err := s.session.SetDTR(*req.DTR); err != nil {
			return portError(c, err)
		}
	}
	if req.RTS != nil {
		if err := s.session.SetRTS(*req.RTS); err != nil {
			return portError(c, err)
		}
	}
	return s.handleModem(c)
}

// handleConsole returns the console scroll-back
func (s *Server) handleConsole(c *fiber.Ctx) error {
	return c.JSON(s.session.Console.Entries())
}
