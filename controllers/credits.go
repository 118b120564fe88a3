// controllers/credits.go
package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salonpro-reminders/services"
	"salonpro-reminders/sms"
	"salonpro-reminders/store"
	"salonpro-reminders/utils"
)

// CreditController reports SMS credit balances
type CreditController struct {
	Guard    *services.CreditGuard
	Provider sms.Provider
}

type CreditSummary struct {
	BusinessID          uuid.UUID  `json:"businessId"`
	SubscriptionStatus  string     `json:"subscriptionStatus"`
	FreeSmsCredits      int        `json:"freeSmsCredits"`
	PaidSmsCredits      int        `json:"paidSmsCredits"`
	TotalSmsCredits     int        `json:"totalSmsCredits"`
	NextCreditResetDate *time.Time `json:"nextCreditResetDate,omitempty"`
	DaysUntilReset      *int       `json:"daysUntilReset,omitempty"`
}

// GetCredits applies pending expiry and resets, then returns the balance
func (cc *CreditController) GetCredits(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid business ID")
		return
	}

	b, err := cc.Guard.CheckAndRefresh(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(c, http.StatusNotFound, "Business not found")
		return
	}
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to load credits")
		return
	}

	summary := CreditSummary{
		BusinessID:          b.ID,
		SubscriptionStatus:  string(b.SubscriptionStatus),
		FreeSmsCredits:      b.FreeSmsCredits,
		PaidSmsCredits:      b.PaidSmsCredits,
		TotalSmsCredits:     b.TotalCredits(),
		NextCreditResetDate: b.NextCreditResetDate,
	}
	if b.NextCreditResetDate != nil {
		days := utils.DaysBetween(time.Now(), *b.NextCreditResetDate)
		summary.DaysUntilReset = &days
	}
	c.JSON(http.StatusOK, summary)
}

// GetSmsBalance returns the provider-side balance for monitoring
func (cc *CreditController) GetSmsBalance(c *gin.Context) {
	units, err := cc.Provider.Balance(c.Request.Context())
	if err != nil {
		utils.RespondWithError(c, http.StatusBadGateway, "Failed to fetch provider balance: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": cc.Provider.Name(), "balance": units})
}
