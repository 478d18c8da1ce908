package upstream

import "net/http"

// browserHeaders are sent on every upstream request. The upstream serves
// browser clients only and rejects requests that do not look like one.
//
// Accept-Encoding is left to net/http so that gzip bodies are decoded
// transparently.
var browserHeaders = map[string]string{
	"Accept":             "*/*",
	"Accept-Language":    "zh-CN,zh;q=0.9",
	"Origin":             "https://chat.deepseek.com",
	"Pragma":             "no-cache",
	"Referer":            "https://chat.deepseek.com/",
	"Sec-Ch-Ua":          `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
	"Sec-Ch-Ua-Mobile":   "?0",
	"Sec-Ch-Ua-Platform": `"Windows"`,
	"Sec-Fetch-Dest":     "empty",
	"Sec-Fetch-Mode":     "cors",
	"Sec-Fetch-Site":     "same-origin",
	"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"X-App-Version":      "20240126.0",
}

// buildHeaders merges overrides over the browser header set.
func buildHeaders(overrides map[string]string) http.Header {
	h := make(http.Header, len(browserHeaders)+len(overrides))
	for k, v := range browserHeaders {
		h.Set(k, v)
	}
	for k, v := range overrides {
		if v == "" {
			h.Del(k)
			continue
		}
		h.Set(k, v)
	}
	return h
}
