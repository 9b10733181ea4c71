package main

import (
	"context"
	"database/sql/driver"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"bitbucket.org/mmdatafocus/stationops_backend/models/reports"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"bitbucket.org/mmdatafocus/stationops_backend/workflow"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// respondError maps the ledger's sentinel errors onto HTTP statuses. Every
// message is specific and actionable; duplicate and lock violations say
// outright that the action is irreversible.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrDateSequenceViolation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrCycleMisaligned):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrRecordAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrControlSumLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidReading):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrWriteIntegrityFailure):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case isInternalErr(err):
		config.LogError(config.GetLogger(), "handlers", "respondError", "internal error", c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// isInternalErr separates infrastructure failures from business validation
// errors: the former get a 500 with detail kept in the logs, the latter keep
// their actionable message on a 400.
func isInternalErr(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidDB)
}

func paramInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func paramDate(c *gin.Context, name string) (time.Time, bool) {
	d, err := time.Parse(dateLayout, c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a YYYY-MM-DD date"})
		return time.Time{}, false
	}
	return d, true
}

func queryDateRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	from, err = time.Parse(dateLayout, c.Query("from"))
	if err == nil {
		to, err = time.Parse(dateLayout, c.Query("to"))
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be YYYY-MM-DD dates"})
		return from, to, false
	}
	return from, to, true
}

func paramSubLedger(c *gin.Context) (models.SubLedger, bool) {
	sl := models.SubLedger(c.Param("subledger"))
	if !sl.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sub-ledger must be PARTNER, HOSE or GENERAL"})
		return sl, false
	}
	return sl, true
}

/* auth */

func signinHandler() gin.HandlerFunc {
	type signinRequest struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var req signinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		token, user, err := models.Signin(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

/* stations */

func createStationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStation
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		station, err := models.CreateStation(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, station)
	}
}

func updateStationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		var input models.NewStation
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		station, err := models.UpdateStation(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, station)
	}
}

func deleteStationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		station, err := models.DeleteStation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, station)
	}
}

func getStationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		station, err := models.GetStation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, station)
	}
}

func listStationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		stations, err := models.GetStationsAll(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stations)
	}
}

/* contracts */

func createContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewContract
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		contract, err := models.CreateContract(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, contract)
	}
}

func getContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		contract, err := models.GetContract(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, contract)
	}
}

func listContractsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var stationId *int
		if v := c.Query("station_id"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid station_id"})
				return
			}
			stationId = &id
		}
		var partnerName *string
		if v := c.Query("partner_name"); v != "" {
			partnerName = &v
		}
		contracts, err := models.GetContractsAll(c.Request.Context(), stationId, partnerName)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, contracts)
	}
}

func addContractPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		var input models.NewContractPrice
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		price, err := models.AddContractPrice(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, price)
	}
}

func recordPartnerPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		var input models.NewPartnerPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		txn, err := models.RecordPartnerPayment(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, txn)
	}
}

func partnerBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		from, to, ok := queryDateRange(c)
		if !ok {
			return
		}
		balance, err := reports.GetPartnerRunningBalance(c.Request.Context(), id, from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}

/* sequencing and alignment */

func nextDateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		sl, ok := paramSubLedger(c)
		if !ok {
			return
		}
		next, err := workflow.NextLegalDate(c.Request.Context(), id, sl)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, next)
	}
}

func nextDatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		nexts, err := workflow.NextLegalDates(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, nexts)
	}
}

func alignmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		alignment, err := workflow.CheckAligned(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, alignment)
	}
}

/* reporting cycle */

func startCycleHandler() gin.HandlerFunc {
	type startCycleRequest struct {
		ReportDate string `json:"report_date" binding:"required"`
	}
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		var req startCycleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		date, err := time.Parse(dateLayout, req.ReportDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "report_date must be a YYYY-MM-DD date"})
			return
		}
		cycle, err := workflow.StartCycle(c.Request.Context(), id, date)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cycle)
	}
}

func openCycleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		status, err := workflow.ResumeCycle(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if status == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no open reporting cycle for this station"})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func submitPartnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		var input models.NewPartnerReport
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		cycle, err := workflow.SubmitPartnerReport(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cycle)
	}
}

func submitHoseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		var input models.NewHoseReport
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		cycle, err := workflow.SubmitHoseReport(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cycle)
	}
}

func submitGeneralHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		var input models.NewGeneralReport
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		cycle, err := workflow.SubmitGeneralReport(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cycle)
	}
}

func abandonCycleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		cycle, err := workflow.AbandonCycle(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cycle)
	}
}

/* sub-ledger reads */

func latestReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		sl, ok := paramSubLedger(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		var result any
		var err error
		switch sl {
		case models.SubLedgerPartner:
			result, err = models.GetLatestPartnerReport(ctx, id)
		case models.SubLedgerHose:
			result, err = models.GetLatestHoseReport(ctx, id)
		case models.SubLedgerGeneral:
			result, err = models.GetLatestGeneralReport(ctx, id)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func reportByDateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		sl, ok := paramSubLedger(c)
		if !ok {
			return
		}
		date, ok := paramDate(c, "date")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		var result any
		var err error
		switch sl {
		case models.SubLedgerPartner:
			result, err = models.GetPartnerReportByDate(ctx, id, date)
		case models.SubLedgerHose:
			result, err = models.GetHoseReportByDate(ctx, id, date)
		case models.SubLedgerGeneral:
			result, err = models.GetGeneralReportByDate(ctx, id, date)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func reportsInRangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		sl, ok := paramSubLedger(c)
		if !ok {
			return
		}
		from, to, ok := queryDateRange(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		var result any
		var err error
		switch sl {
		case models.SubLedgerPartner:
			result, err = models.GetPartnerReports(ctx, id, from, to)
		case models.SubLedgerHose:
			result, err = models.GetHoseReports(ctx, id, from, to)
		case models.SubLedgerGeneral:
			result, err = models.GetGeneralReports(ctx, id, from, to)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

/* reconciliation */

func reconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		date, ok := paramDate(c, "date")
		if !ok {
			return
		}
		view, err := reports.GetDailyReconciliation(c.Request.Context(), id, date)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func reconciliationRangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		from, to, ok := queryDateRange(c)
		if !ok {
			return
		}
		views, err := reports.GetDailyReconciliationRange(c.Request.Context(), id, from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, views)
	}
}

/* control sums */

func setControlSumHandler() gin.HandlerFunc {
	type controlSumRequest struct {
		ReportDate    string          `json:"report_date" binding:"required"`
		Category      string          `json:"category" binding:"required"`
		Value         decimal.Decimal `json:"value" binding:"required"`
		ReceiptNumber string          `json:"receipt_number" binding:"required"`
		ReceivedDate  string          `json:"received_date" binding:"required"`
	}
	return func(c *gin.Context) {
		id, ok := paramInt(c, "id")
		if !ok {
			return
		}
		var req controlSumRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		reportDate, err := time.Parse(dateLayout, req.ReportDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "report_date must be a YYYY-MM-DD date"})
			return
		}
		receivedDate, err := time.Parse(dateLayout, req.ReceivedDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "received_date must be a YYYY-MM-DD date"})
			return
		}
		entry, err := workflow.SetControlSum(c.Request.Context(), id, reportDate,
			req.Category, req.Value, req.ReceiptNumber, receivedDate)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func healthzHandler(c *gin.Context) {
	if config.GetDB() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database not ready"})
		return
	}
	c.Status(http.StatusNoContent)
}
