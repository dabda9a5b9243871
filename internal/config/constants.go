package config

import "time"

// Application constants
const (
	AppName    = "dtindex"
	AppVersion = "1.0.0"

	DefaultPort           = 8080
	DefaultRequestTimeout = 30 * time.Second

	// Rate Limiting
	DefaultRateLimit = 20 // requests per second
	DefaultBurstSize = 40

	// Dataset files
	DefaultIndexFile    = "数字化转型指数合并数据.xlsx"
	DefaultIndustryFile = "最终数据dta格式-上市公司年度行业代码至2021.xlsx"
	DefaultDatasetFile  = "数字化转型指数合并数据_带行业信息.xlsx"

	DefaultIdentifierWidth   = 6
	DefaultPeriodMin         = 2000
	DefaultPeriodMax         = 2100
	DefaultGroupAverageLabel = "行业平均指数"

	// Displayed statistics are rounded to this many decimals.
	DisplayPrecision = 2

	// PeriodHeader labels the period column of exported tables.
	PeriodHeader = "年份"
)
