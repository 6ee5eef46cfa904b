package eastmoney

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://push2his.eastmoney.com"
	klinePath      = "/api/qt/stock/kline/get"
	defaultTimeout = 30 * time.Second
)

// baseTransportConfig returns the shared HTTP transport configuration used by the client.
func baseTransportConfig() *http.Transport {
	return &http.Transport{
		ResponseHeaderTimeout: defaultTimeout,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   16,
	}
}

// newRestyClient creates a resty client configured for kline requests.
// No automatic retries: the only retry is the market-guess swap done by the caller.
func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetTransport(baseTransportConfig()).
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 6.3; WOW64; Trident/7.0; Touch; rv:11.0) like Gecko").
		SetHeader("Accept", "*/*").
		SetHeader("Accept-Language", "zh-CN,zh;q=0.8,zh-TW;q=0.7,zh-HK;q=0.5,en-US;q=0.3,en;q=0.2").
		SetHeader("Referer", "http://quote.eastmoney.com/center/gridlist.html")
}
