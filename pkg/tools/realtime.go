// Package tools provides the realtime lookup tools exposed to the draft
// step: current date/time and weather by city. Tools are side-effect-free
// and return short structured results that are merged into prompt context.
package tools

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DatetimeResult is the current date and time in conversational form.
type DatetimeResult struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Weekday   string `json:"weekday"`
	Period    string `json:"period"`
	Formatted string `json:"formatted"`
	Timestamp string `json:"timestamp"`
}

// WeatherResult is the current weather for a city.
type WeatherResult struct {
	Success     bool   `json:"success"`
	City        string `json:"city"`
	Temperature string `json:"temperature,omitempty"`
	Humidity    string `json:"humidity,omitempty"`
	Weather     string `json:"weather,omitempty"`
	High        string `json:"high,omitempty"`
	Low         string `json:"low,omitempty"`
	Formatted   string `json:"formatted"`
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "星期一",
	time.Tuesday:   "星期二",
	time.Wednesday: "星期三",
	time.Thursday:  "星期四",
	time.Friday:    "星期五",
	time.Saturday:  "星期六",
	time.Sunday:    "星期日",
}

// Now returns the current date and time with a Chinese weekday and day
// period.
func Now() *DatetimeResult {
	return dateTimeAt(time.Now())
}

func dateTimeAt(now time.Time) *DatetimeResult {
	var period string
	switch hour := now.Hour(); {
	case hour >= 5 && hour < 9:
		period = "早上"
	case hour >= 9 && hour < 12:
		period = "上午"
	case hour >= 12 && hour < 14:
		period = "中午"
	case hour >= 14 && hour < 18:
		period = "下午"
	case hour >= 18 && hour < 22:
		period = "晚上"
	default:
		period = "深夜"
	}

	date := now.Format("2006年01月02日")
	clock := now.Format("15:04")
	weekday := weekdayNames[now.Weekday()]

	return &DatetimeResult{
		Date:      date,
		Time:      clock,
		Weekday:   weekday,
		Period:    period,
		Formatted: fmt.Sprintf("%s %s %s %s", date, weekday, period, clock),
		Timestamp: now.Format(time.RFC3339),
	}
}

// cityCoords maps supported city names to latitude/longitude for the
// open-meteo API. Unknown cities default to 深圳.
var cityCoords = map[string][2]float64{
	"深圳": {22.55, 114.07},
	"北京": {39.90, 116.40},
	"上海": {31.23, 121.47},
	"广州": {23.13, 113.26},
	"杭州": {30.27, 120.15},
	"成都": {30.57, 104.07},
	"武汉": {30.58, 114.27},
	"西安": {34.27, 108.93},
	"南京": {32.06, 118.80},
	"重庆": {29.56, 106.55},
	"苏州": {31.30, 120.62},
	"天津": {39.12, 117.20},
	"长沙": {28.23, 112.94},
	"青岛": {36.07, 120.38},
	"东莞": {23.05, 113.75},
}

// weatherCodeDesc maps WMO weather codes to Chinese descriptions.
var weatherCodeDesc = map[int]string{
	0: "晴天",
	1: "晴朗", 2: "多云", 3: "阴天",
	45: "有雾", 48: "雾凇",
	51: "小毛毛雨", 53: "毛毛雨", 55: "大毛毛雨",
	61: "小雨", 63: "中雨", 65: "大雨",
	66: "冻雨", 67: "大冻雨",
	71: "小雪", 73: "中雪", 75: "大雪",
	77: "雪粒",
	80: "小阵雨", 81: "阵雨", 82: "大阵雨",
	85: "小阵雪", 86: "大阵雪",
	95: "雷阵雨",
	96: "雷阵雨伴小冰雹", 99: "雷阵雨伴冰雹",
}

// WeatherService fetches current weather. The primary source is open-meteo
// (free, no key); wttr.in is the fallback.
type WeatherService struct {
	client *resty.Client
}

// NewWeatherService creates a WeatherService with sensible timeouts.
func NewWeatherService() *WeatherService {
	return &WeatherService{
		client: resty.New().SetTimeout(5 * time.Second),
	}
}

// Weather returns the current weather for a city. An empty or unknown city
// falls back to 深圳. Both sources failing yields a friendly apology rather
// than an error, since the result text goes straight into conversation.
func (w *WeatherService) Weather(city string) *WeatherResult {
	if city == "" {
		city = "深圳"
	}

	if result, err := w.fetchOpenMeteo(city); err == nil {
		return result
	}
	if result, err := w.fetchWttr(city); err == nil {
		return result
	}

	return &WeatherResult{
		Success:   false,
		City:      city,
		Formatted: fmt.Sprintf("抱歉，暂时无法获取%s的天气信息，不过我还是在这里陪着你呀~", city),
	}
}

type openMeteoResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (w *WeatherService) fetchOpenMeteo(city string) (*WeatherResult, error) {
	coords, ok := cityCoords[city]
	if !ok {
		coords = cityCoords["深圳"]
		city = "深圳"
	}

	var data openMeteoResponse
	resp, err := w.client.R().
		SetQueryParams(map[string]string{
			"latitude":      fmt.Sprintf("%.2f", coords[0]),
			"longitude":     fmt.Sprintf("%.2f", coords[1]),
			"current":       "temperature_2m,relative_humidity_2m,weather_code",
			"daily":         "temperature_2m_max,temperature_2m_min",
			"timezone":      "Asia/Shanghai",
			"forecast_days": "1",
		}).
		SetResult(&data).
		Get("https://api.open-meteo.com/v1/forecast")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("open-meteo returned status %d", resp.StatusCode())
	}

	desc, ok := weatherCodeDesc[data.Current.WeatherCode]
	if !ok {
		desc = "未知天气"
	}

	high, low := "未知", "未知"
	if len(data.Daily.TemperatureMax) > 0 {
		high = fmt.Sprintf("%.1f", data.Daily.TemperatureMax[0])
	}
	if len(data.Daily.TemperatureMin) > 0 {
		low = fmt.Sprintf("%.1f", data.Daily.TemperatureMin[0])
	}

	temp := fmt.Sprintf("%.1f", data.Current.Temperature)
	humidity := fmt.Sprintf("%.0f", data.Current.Humidity)

	return &WeatherResult{
		Success:     true,
		City:        city,
		Temperature: temp + "°C",
		Humidity:    humidity + "%",
		Weather:     desc,
		High:        high + "°C",
		Low:         low + "°C",
		Formatted:   fmt.Sprintf("%s现在%s，%s°C，湿度%s%%，今天%s~%s°C", city, desc, temp, humidity, low, high),
	}, nil
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		Humidity    string `json:"humidity"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
	Weather []struct {
		MaxTempC string `json:"maxtempC"`
		MinTempC string `json:"mintempC"`
	} `json:"weather"`
}

func (w *WeatherService) fetchWttr(city string) (*WeatherResult, error) {
	var data wttrResponse
	resp, err := w.client.R().
		SetHeader("User-Agent", "curl/7.68.0").
		SetQueryParams(map[string]string{"format": "j1", "lang": "zh"}).
		SetResult(&data).
		Get("https://wttr.in/" + city)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wttr.in returned status %d", resp.StatusCode())
	}
	if len(data.CurrentCondition) == 0 {
		return nil, fmt.Errorf("wttr.in returned no conditions")
	}

	current := data.CurrentCondition[0]
	desc := "未知"
	if len(current.WeatherDesc) > 0 {
		desc = current.WeatherDesc[0].Value
	}

	high, low := "未知", "未知"
	if len(data.Weather) > 0 {
		high = data.Weather[0].MaxTempC
		low = data.Weather[0].MinTempC
	}

	return &WeatherResult{
		Success:     true,
		City:        city,
		Temperature: current.TempC + "°C",
		Humidity:    current.Humidity + "%",
		Weather:     desc,
		High:        high + "°C",
		Low:         low + "°C",
		Formatted:   fmt.Sprintf("%s现在%s，%s°C，湿度%s%%，今天%s~%s°C", city, desc, current.TempC, current.Humidity, low, high),
	}, nil
}
