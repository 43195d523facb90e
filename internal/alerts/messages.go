package alerts

import (
	"fmt"
	"strings"
)

type OrderAlert struct {
	Wallet  int
	Asset   string
	Side    string
	Size    string
	Price   string
	Success bool
	Message string
}

func FormatOrder(a OrderAlert) string {
	status := "FAILED"
	if a.Success {
		status = "OK"
	}
	return fmt.Sprintf("wallet %d: %s %s %s @ %s %s\n%s", a.Wallet, a.Side, a.Size, a.Asset, a.Price, status, a.Message)
}

func FormatDegraded(wallet int, sources []string) string {
	return fmt.Sprintf("wallet %d: data sources unavailable: %s", wallet, strings.Join(sources, ", "))
}

func FormatRecovered(wallet int) string {
	return fmt.Sprintf("wallet %d: all data sources available again", wallet)
}
