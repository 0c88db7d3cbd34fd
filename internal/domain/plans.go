package domain

type Plan struct {
	ID               string
	Name             string
	MonthlyCallLimit int
	SetupFeeCents    int64
	MaxChannels      int
}

var plans = map[string]Plan{
	"starter":    {ID: "starter", Name: "Starter", MonthlyCallLimit: 100, SetupFeeCents: 9900, MaxChannels: 1},
	"pro":        {ID: "pro", Name: "Pro", MonthlyCallLimit: 500, SetupFeeCents: 14900, MaxChannels: 3},
	"enterprise": {ID: "enterprise", Name: "Enterprise", MonthlyCallLimit: 2000, SetupFeeCents: 19900, MaxChannels: 10},
}

func PlanByID(id string) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}
