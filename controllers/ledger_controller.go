package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"leadpilot/ledger"
	"leadpilot/utils"
)

type LedgerController struct {
	Ledger *ledger.Ledger
	Logger *logrus.Entry
}

func NewLedgerController(l *ledger.Ledger) *LedgerController {
	return &LedgerController{
		Ledger: l,
		Logger: utils.Logger("ledger_controller"),
	}
}

// GetStats returns contact and follow-up counts
func (lc *LedgerController) GetStats(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(lc.Ledger.Stats()))
}

// CheckContacted reports whether a phone has already been messaged
func (lc *LedgerController) CheckContacted(c *fiber.Ctx) error {
	phone := utils.NormalizePhone(c.Params("phone"))
	if phone == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid phone number", nil)
	}

	resp := fiber.Map{
		"phone":     phone,
		"contacted": lc.Ledger.IsContacted(phone),
	}
	if rec, ok := lc.Ledger.Get(phone); ok {
		resp["record"] = rec
	}
	return c.JSON(utils.SuccessResponse(resp))
}
