// Package config provides configuration management for dtindex. It loads
// settings from defaults, an optional YAML file and environment variables,
// validates them and resolves data file locations.
//
// # Configuration Sources
//
// Sources are applied in this order, later ones winning:
//
//  1. Default values (Default)
//  2. YAML file (config.yaml, configs/config.yaml or an explicit path)
//  3. Environment variables
//
// Command line flags of the individual binaries are applied last by the
// binaries themselves.
//
// # Environment Variables
//
// All environment variables follow the pattern DTI_<SECTION>_<KEY>:
//
//	DTI_SERVER_PORT=8080
//	DTI_DATASET_FILE=数字化转型指数合并数据_带行业信息.xlsx
//	DTI_DATASET_IDENTIFIER_WIDTH=6
//	DTI_DATASET_MAPPING_METRIC=数字化转型指数
//	DTI_LOGGING_LEVEL=debug
//
// # Example File
//
//	dataset:
//	  path: data/index.xlsx
//	  identifier_width: 6
//	  mapping:
//	    identifier: 股票代码
//	    period: 年份
//	    metric: 数字化转型指数
//	logging:
//	  level: debug
//
// # Path Management
//
// Paths resolves relative data file names against the working directory
// and then the executable directory:
//
//	paths, err := config.GetPaths()
//	file := paths.ResolveFile(cfg.Dataset.Path)
package config
