package support

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is the in-memory Store used for development and tests. It
// seeds three sample customers with six months of generated billing
// history and the four published tariff plans.
type MemStore struct {
	mu        sync.RWMutex
	customers map[string]*Customer
	billings  map[string][]Billing
	usages    map[string]*CurrentUsage
	plans     []Plan
	requests  []PlanChangeRequest
}

// NewMemStore builds a seeded store. Billing history and month-to-date
// usage are generated relative to now.
func NewMemStore(now time.Time) *MemStore {
	s := &MemStore{
		customers: make(map[string]*Customer),
		billings:  make(map[string][]Billing),
		usages:    make(map[string]*CurrentUsage),
		plans:     samplePlans(),
	}
	for _, c := range sampleCustomers() {
		customer := c
		s.customers[customer.CustomerID] = &customer
	}
	for id, base := range map[string]int{"C-001": 450, "C-002": 300, "C-003": 260} {
		customer := s.customers[id]
		plan := s.planByID(customer.Contract.PlanID)
		s.billings[id] = generateBillings(customer, plan, base, now)
	}
	for id, perDay := range map[string]float64{"C-001": 15, "C-002": 12.5, "C-003": 7} {
		s.usages[id] = generateCurrentUsage(id, perDay, now)
	}
	return s
}

func (s *MemStore) FindCustomer(ctx context.Context, identifier string) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := strings.TrimSpace(identifier)
	if c, ok := s.customers[id]; ok {
		out := *c
		return &out, nil
	}
	for _, c := range s.customers {
		if c.PhoneLastFour == id {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) BillingHistory(ctx context.Context, customerID string, months int) ([]Billing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	billings, ok := s.billings[customerID]
	if !ok || len(billings) == 0 {
		return nil, ErrNotFound
	}
	out := make([]Billing, len(billings))
	copy(out, billings)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Year != out[j].Period.Year {
			return out[i].Period.Year > out[j].Period.Year
		}
		return out[i].Period.Month > out[j].Period.Month
	})
	if months > 0 && months < len(out) {
		out = out[:months]
	}
	return out, nil
}

func (s *MemStore) CurrentUsage(ctx context.Context, customerID string) (*CurrentUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usages[customerID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemStore) AvailablePlans(ctx context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if p.IsAvailable {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemStore) PlanByID(ctx context.Context, planID string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.planByID(planID); p != nil {
		out := *p
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *MemStore) CreatePlanChangeRequest(ctx context.Context, req *PlanChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, *req)
	return nil
}

// PlanChangeRequests returns the recorded requests, oldest first.
func (s *MemStore) PlanChangeRequests() []PlanChangeRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PlanChangeRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *MemStore) planByID(planID string) *Plan {
	for i := range s.plans {
		if s.plans[i].ID == planID {
			return &s.plans[i]
		}
	}
	return nil
}

// generateBillings produces the past six closed billing months with a
// seasonal usage curve: summer air conditioning and winter heating push
// consumption up.
func generateBillings(customer *Customer, plan *Plan, baseUsage int, now time.Time) []Billing {
	billings := make([]Billing, 0, 6)
	for i := 1; i <= 6; i++ {
		period := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		year, month := period.Year(), int(period.Month())

		factor := 1.0
		switch {
		case month >= 7 && month <= 9:
			factor = 1.3
		case month == 12 || month <= 2:
			factor = 1.2
		}
		totalKwh := int(math.Floor(float64(baseUsage) * factor))

		usage, charges := ItemizeCharges(plan, customer.Contract.ContractedAmperage, totalKwh)

		status := PaymentPaid
		if i == 1 {
			status = PaymentPending
		}
		due := period.AddDate(0, 1, 9)

		billings = append(billings, Billing{
			ID:             fmt.Sprintf("B-%s-%04d%02d", customer.CustomerID, year, month),
			CustomerID:     customer.CustomerID,
			Period:         BillingPeriod{Year: year, Month: month, Days: 30},
			Usage:          usage,
			Charges:        charges,
			PaymentStatus:  status,
			PaymentDueDate: due.Format("2006-01-02"),
			PlanID:         plan.ID,
			PlanName:       plan.PlanName,
		})
	}
	return billings
}

func generateCurrentUsage(customerID string, perDayKwh float64, now time.Time) *CurrentUsage {
	daysElapsed := now.Day()
	toDate := int(math.Floor(perDayKwh * float64(daysElapsed)))
	return &CurrentUsage{
		CustomerID:          customerID,
		Year:                now.Year(),
		Month:               int(now.Month()),
		TotalKwhToDate:      toDate,
		DaysElapsed:         daysElapsed,
		EstimatedMonthlyKwh: int(math.Floor(perDayKwh * 30)),
		EstimatedMonthlyCharge: map[string]int{
			"C-001": 13500, "C-002": 11200, "C-003": 6200,
		}[customerID],
		LastUpdated: now,
	}
}

func sampleCustomers() []Customer {
	return []Customer{
		{
			CustomerID:    "C-001",
			Name:          "野村宏樹",
			NameKana:      "ノムラヒロキ",
			Phone:         "03-1234-5678",
			PhoneLastFour: "5678",
			Email:         "nomura@example.com",
			Address: Address{
				PostalCode: "100-0001",
				Prefecture: "東京都",
				City:       "千代田区",
				Street:     "千代田1-1-1",
			},
			Contract: Contract{
				ContractID:         "CT-2023-001",
				PlanID:             "plan-standard-b",
				PlanName:           "従量電灯B",
				ContractedAmperage: 50,
				ContractStartDate:  "2023-04-01",
				SupplyPointID:      "0312345678901234567890",
			},
			MeterType: MeterSmart,
			PaymentMethod: PaymentMethod{
				Type:           PaymentCreditCard,
				LastFourDigits: "1234",
			},
		},
		{
			CustomerID:    "C-002",
			Name:          "佐藤花子",
			NameKana:      "サトウハナコ",
			Phone:         "06-9876-5432",
			PhoneLastFour: "5432",
			Email:         "sato@example.com",
			Address: Address{
				PostalCode: "530-0001",
				Prefecture: "大阪府",
				City:       "大阪市北区",
				Street:     "梅田2-2-2",
			},
			Contract: Contract{
				ContractID:         "CT-2022-015",
				PlanID:             "plan-smart-eco",
				PlanName:           "スマートエコプラン",
				ContractedAmperage: 50,
				ContractStartDate:  "2022-08-01",
				SupplyPointID:      "0698765432109876543210",
			},
			MeterType: MeterSmart,
			PaymentMethod: PaymentMethod{
				Type:     PaymentBankTransfer,
				BankName: "みずほ銀行",
			},
		},
		{
			CustomerID:    "C-003",
			Name:          "鈴木一郎",
			NameKana:      "スズキイチロウ",
			Phone:         "052-1111-2222",
			PhoneLastFour: "2222",
			Email:         "suzuki@example.com",
			Address: Address{
				PostalCode: "460-0001",
				Prefecture: "愛知県",
				City:       "名古屋市中区",
				Street:     "栄3-3-3",
			},
			Contract: Contract{
				ContractID:         "CT-2024-003",
				PlanID:             "plan-standard-b",
				PlanName:           "従量電灯B",
				ContractedAmperage: 30,
				ContractStartDate:  "2024-01-15",
				SupplyPointID:      "0521111222233334444555",
			},
			MeterType: MeterStandard,
			PaymentMethod: PaymentMethod{
				Type: PaymentConvenienceStore,
			},
		},
	}
}

func samplePlans() []Plan {
	return []Plan{
		{
			ID:                 "plan-standard-b",
			PlanType:           "従量電灯",
			PlanName:           "従量電灯B",
			Description:        "一般家庭向けの標準的な料金プランです。使用量に応じた3段階の料金体系となっています。",
			TargetCustomer:     "一般家庭向け",
			AvailableAmperages: []int{30, 40, 50, 60},
			Pricing: PlanPricing{
				BasicCharges: []BasicCharge{
					{Amperage: 30, MonthlyCharge: 885},
					{Amperage: 40, MonthlyCharge: 1180},
					{Amperage: 50, MonthlyCharge: 1476},
					{Amperage: 60, MonthlyCharge: 1771},
				},
				Tier1: TierPrice{UpToKwh: 120, PricePerKwh: 19.88},
				Tier2: TierPrice{UpToKwh: 300, PricePerKwh: 26.46},
				Tier3: TierPrice{PricePerKwh: 30.57},
			},
			Benefits:    []string{"契約期間の縛りなし", "安定した料金体系", "契約変更が容易"},
			IsAvailable: true,
		},
		{
			ID:                 "plan-smart-eco",
			PlanType:           "スマートプラン",
			PlanName:           "スマートエコプラン",
			Description:        "時間帯別料金で、夜間の電気料金がお得になるプランです。オール電化住宅や夜型のライフスタイルの方におすすめです。",
			TargetCustomer:     "オール電化・夜型生活向け",
			AvailableAmperages: []int{40, 50, 60},
			Pricing: PlanPricing{
				BasicCharges: []BasicCharge{
					{Amperage: 40, MonthlyCharge: 1210},
					{Amperage: 50, MonthlyCharge: 1512},
					{Amperage: 60, MonthlyCharge: 1815},
				},
				Tier1: TierPrice{UpToKwh: 120, PricePerKwh: 20.50},
				Tier2: TierPrice{UpToKwh: 300, PricePerKwh: 27.00},
				Tier3: TierPrice{PricePerKwh: 31.00},
				TimeOfUse: &TimeOfUsePricing{
					PeakPrice:    32.00,
					OffPeakPrice: 18.50,
					PeakHours:    "7:00-23:00",
				},
			},
			Benefits:              []string{"夜間電力が約42%お得", "オール電化住宅に最適", "電気温水器利用者向け"},
			MinimumContractMonths: 12,
			EarlyTerminationFee:   2200,
			IsAvailable:           true,
		},
		{
			ID:                 "plan-green-plus",
			PlanType:           "再エネプラン",
			PlanName:           "グリーンプラスプラン",
			Description:        "再生可能エネルギー100%の電力を供給するプランです。環境に配慮したいお客様におすすめです。",
			TargetCustomer:     "環境意識の高い方向け",
			AvailableAmperages: []int{30, 40, 50, 60},
			Pricing: PlanPricing{
				BasicCharges: []BasicCharge{
					{Amperage: 30, MonthlyCharge: 980},
					{Amperage: 40, MonthlyCharge: 1306},
					{Amperage: 50, MonthlyCharge: 1633},
					{Amperage: 60, MonthlyCharge: 1960},
				},
				Tier1: TierPrice{UpToKwh: 120, PricePerKwh: 22.00},
				Tier2: TierPrice{UpToKwh: 300, PricePerKwh: 28.50},
				Tier3: TierPrice{PricePerKwh: 32.50},
			},
			Benefits:              []string{"再エネ100%", "CO2排出実質ゼロ", "環境貢献証明書発行"},
			MinimumContractMonths: 6,
			IsAvailable:           true,
		},
		{
			ID:                 "plan-family-value",
			PlanType:           "ファミリープラン",
			PlanName:           "ファミリーバリュープラン",
			Description:        "電気使用量が多いご家庭向けのプランです。300kWh以上の使用で割引が適用されます。",
			TargetCustomer:     "大家族・使用量多め向け",
			AvailableAmperages: []int{50, 60},
			Pricing: PlanPricing{
				BasicCharges: []BasicCharge{
					{Amperage: 50, MonthlyCharge: 1540},
					{Amperage: 60, MonthlyCharge: 1848},
				},
				Tier1: TierPrice{UpToKwh: 120, PricePerKwh: 19.88},
				Tier2: TierPrice{UpToKwh: 300, PricePerKwh: 26.46},
				Tier3: TierPrice{PricePerKwh: 28.00},
			},
			Benefits:              []string{"300kWh超の料金が約8%お得", "大家族向け", "4人以上世帯におすすめ"},
			MinimumContractMonths: 12,
			IsAvailable:           true,
		},
	}
}
