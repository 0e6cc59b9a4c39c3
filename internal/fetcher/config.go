package fetcher

type Config struct {
	// ScheduleURL is the portal's internal schedule-entries endpoint. appd
	// and a cache-busting token are appended per request.
	ScheduleURL string
}

func DefaultConfig() Config {
	return Config{
		ScheduleURL: "https://www.usvisascheduling.com/en-US/api/v1/schedule-group/get-family-consular-schedule-entries",
	}
}
