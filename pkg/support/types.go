// Package support implements the electricity-utility customer support
// domain: customers, billing history, tariff plans, usage estimates and
// plan-change requests, plus the tool handlers the conversation engine
// exposes over them.
package support

import "time"

// MeterType distinguishes smart meters (realtime usage available) from
// standard meters (billing-cycle reads only).
type MeterType string

const (
	MeterSmart    MeterType = "smart"
	MeterStandard MeterType = "standard"
)

// PaymentType enumerates how a customer settles their bill.
type PaymentType string

const (
	PaymentCreditCard       PaymentType = "credit_card"
	PaymentBankTransfer     PaymentType = "bank_transfer"
	PaymentConvenienceStore PaymentType = "convenience_store"
)

type Address struct {
	PostalCode string `json:"postalCode"`
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Street     string `json:"street"`
}

func (a Address) String() string {
	return a.PostalCode + " " + a.Prefecture + a.City + a.Street
}

type Contract struct {
	ContractID         string `json:"contractId"`
	PlanID             string `json:"planId"`
	PlanName           string `json:"planName"`
	ContractedAmperage int    `json:"contractedAmperage"`
	ContractStartDate  string `json:"contractStartDate"`
	SupplyPointID      string `json:"supplyPointId"`
}

type PaymentMethod struct {
	Type           PaymentType `json:"type"`
	LastFourDigits string      `json:"lastFourDigits,omitempty"`
	BankName       string      `json:"bankName,omitempty"`
}

// Customer is one contract holder. PhoneLastFour is denormalized for
// voice-friendly lookup.
type Customer struct {
	CustomerID    string        `json:"customerId"`
	Name          string        `json:"customerName"`
	NameKana      string        `json:"customerNameKana"`
	Phone         string        `json:"phone"`
	PhoneLastFour string        `json:"phoneLastFour"`
	Email         string        `json:"email"`
	Address       Address       `json:"address"`
	Contract      Contract      `json:"contract"`
	MeterType     MeterType     `json:"meterType"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

type BillingPeriod struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Days  int `json:"days"`
}

// Usage is one month's consumption split across the three rate tiers.
type Usage struct {
	TotalKwh int `json:"totalKwh"`
	Tier1Kwh int `json:"tier1Kwh"`
	Tier2Kwh int `json:"tier2Kwh"`
	Tier3Kwh int `json:"tier3Kwh"`
}

// Charges is the full itemized bill, all amounts in yen.
type Charges struct {
	BasicCharge     int `json:"basicCharge"`
	Tier1Charge     int `json:"tier1Charge"`
	Tier2Charge     int `json:"tier2Charge"`
	Tier3Charge     int `json:"tier3Charge"`
	FuelAdjustment  int `json:"fuelAdjustment"`
	RenewableEnergy int `json:"renewableEnergy"`
	Subtotal        int `json:"subtotal"`
	Tax             int `json:"tax"`
	TotalAmount     int `json:"totalAmount"`
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

type Billing struct {
	ID             string        `json:"id"`
	CustomerID     string        `json:"customerId"`
	Period         BillingPeriod `json:"billingPeriod"`
	Usage          Usage         `json:"usage"`
	Charges        Charges       `json:"charges"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	PaymentDueDate string        `json:"paymentDueDate"`
	PlanID         string        `json:"planId"`
	PlanName       string        `json:"planName"`
}

// CurrentUsage is the smart-meter month-to-date read.
type CurrentUsage struct {
	CustomerID             string    `json:"customerId"`
	Year                   int       `json:"year"`
	Month                  int       `json:"month"`
	TotalKwhToDate         int       `json:"totalKwhToDate"`
	DaysElapsed            int       `json:"daysElapsed"`
	EstimatedMonthlyKwh    int       `json:"estimatedMonthlyKwh"`
	EstimatedMonthlyCharge int       `json:"estimatedMonthlyCharge"`
	LastUpdated            time.Time `json:"lastUpdated"`
}

// BasicCharge is the fixed monthly charge for one contracted amperage.
type BasicCharge struct {
	Amperage      int `json:"amperage"`
	MonthlyCharge int `json:"monthlyCharge"`
}

// TierPrice is one step of a tiered tariff. UpToKwh of zero means the
// tier is unbounded.
type TierPrice struct {
	UpToKwh     int     `json:"upToKwh,omitempty"`
	PricePerKwh float64 `json:"pricePerKwh"`
}

type TimeOfUsePricing struct {
	PeakPrice    float64 `json:"peakPrice"`
	OffPeakPrice float64 `json:"offPeakPrice"`
	PeakHours    string  `json:"peakHours"`
}

type PlanPricing struct {
	BasicCharges []BasicCharge     `json:"basicCharges"`
	Tier1        TierPrice         `json:"tier1"`
	Tier2        TierPrice         `json:"tier2"`
	Tier3        TierPrice         `json:"tier3"`
	TimeOfUse    *TimeOfUsePricing `json:"timeOfUsePricing,omitempty"`
}

type Plan struct {
	ID                    string      `json:"id"`
	PlanType              string      `json:"planType"`
	PlanName              string      `json:"planName"`
	Description           string      `json:"description"`
	TargetCustomer        string      `json:"targetCustomer"`
	AvailableAmperages    []int       `json:"availableAmperages"`
	Pricing               PlanPricing `json:"pricing"`
	Benefits              []string    `json:"benefits"`
	MinimumContractMonths int         `json:"minimumContractPeriod,omitempty"`
	EarlyTerminationFee   int         `json:"earlyTerminationFee,omitempty"`
	IsAvailable           bool        `json:"isAvailable"`
}

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestApproved   RequestStatus = "approved"
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestRejected   RequestStatus = "rejected"
)

// PlanRef is the plan half of a change request.
type PlanRef struct {
	PlanID   string `json:"planId"`
	PlanName string `json:"planName"`
	Amperage int    `json:"amperage"`
}

type PlanChangeRequest struct {
	ID                     string        `json:"id"`
	CustomerID             string        `json:"customerId"`
	CurrentPlan            PlanRef       `json:"currentPlan"`
	RequestedPlan          PlanRef       `json:"requestedPlan"`
	Status                 RequestStatus `json:"status"`
	RequestedEffectiveDate string        `json:"requestedEffectiveDate"`
	CreatedAt              time.Time     `json:"createdAt"`
}
