package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"SmartWater.influxDB/internal/models"
	"SmartWater.influxDB/internal/service"
	"SmartWater.influxDB/internal/utils"
)

// CommandRelayer validates and forwards a device command.
type CommandRelayer interface {
	Relay(ctx context.Context, raw string) (models.Command, error)
}

// CommandController handles HTTP requests for device commands.
type CommandController struct {
	relay CommandRelayer
}

// NewCommandController creates a new CommandController.
func NewCommandController(relay CommandRelayer) *CommandController {
	return &CommandController{relay: relay}
}

// HandleCommand relays {"command":"ON"|"OFF"} to the devices.
func (c *CommandController) HandleCommand(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req models.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErr := models.NewAPIError(models.ErrorCodeInvalidFormat, "Invalid request payload", http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}

	cmd, err := c.relay.Relay(r.Context(), req.Command)
	if errors.Is(err, service.ErrInvalidCommand) {
		apiErr := models.NewAPIError(models.ErrorCodeInvalidCommand, "Invalid command", http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}
	if err != nil {
		log.Printf("Error relaying command: %v", err)
		apiErr := models.NewAPIError(models.ErrorCodePublishFailed, "Failed to send command", http.StatusInternalServerError)
		utils.RespondWithError(w, apiErr)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, models.CommandResponse{Status: "ok", CommandSent: cmd})
}
