package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"order-service/internal/model"
	"order-service/pkg/database"
	"order-service/pkg/logger"
)

// AgentRequest defines the structure for agent creation/update requests
type AgentRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Company string `json:"company"`
}

// ListAgents handles retrieving all agents
func ListAgents(c echo.Context) error {
	log := logger.FromContext(c)

	var agents []model.Agent
	result := database.GetDB().Order("name").Find(&agents)
	if result.Error != nil {
		log.Error("Failed to list agents", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve agents"})
	}

	return c.JSON(http.StatusOK, agents)
}

// GetAgent handles retrieving a single agent by ID
func GetAgent(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var agent model.Agent
	result := database.GetDB().First(&agent, id)
	if result.Error != nil {
		log.Warn("Agent not found", zap.String("agent_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Agent not found"})
	}

	return c.JSON(http.StatusOK, agent)
}

// CreateAgent handles creating a new agent
func CreateAgent(c echo.Context) error {
	log := logger.FromContext(c)

	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == "" || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and email are required"})
	}

	agent := model.Agent{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		Company: req.Company,
	}
	result := database.GetDB().Create(&agent)
	if result.Error != nil {
		log.Error("Failed to create agent", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create agent"})
	}

	log.Info("Agent created", zap.Uint("agent_id", agent.ID))
	return c.JSON(http.StatusCreated, agent)
}

// UpdateAgent handles updating an existing agent
func UpdateAgent(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.String("agent_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	var agent model.Agent
	result := database.GetDB().First(&agent, id)
	if result.Error != nil {
		log.Warn("Agent not found for update", zap.String("agent_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Agent not found"})
	}

	agent.Name = req.Name
	agent.Email = req.Email
	agent.Phone = req.Phone
	agent.Address = req.Address
	agent.Company = req.Company

	result = database.GetDB().Save(&agent)
	if result.Error != nil {
		log.Error("Failed to update agent", zap.String("agent_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update agent"})
	}

	log.Info("Agent updated", zap.Uint("agent_id", agent.ID))
	return c.JSON(http.StatusOK, agent)
}

// DeleteAgent handles deleting an agent. Orders referencing the agent keep
// existing with the agent reference cleared, in the same transaction as the
// delete.
func DeleteAgent(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var rowsAffected int64
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Order{}).Where("agent_id = ?", id).
			Update("agent_id", nil).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.Agent{}, id)
		if result.Error != nil {
			return result.Error
		}
		rowsAffected = result.RowsAffected
		return nil
	})
	if err != nil {
		log.Error("Failed to delete agent", zap.String("agent_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete agent"})
	}
	if rowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Agent not found"})
	}

	log.Info("Agent deleted", zap.String("agent_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "Agent deleted successfully"})
}
