/*
Package config 提供运行时的统一配置加载。

# 加载方式

	cfg, err := config.NewLoader().
	    WithConfigPath("config.yaml").
	    WithEnvPrefix("AGENTSCOPE").
	    Load()

配置优先级: 默认值 → YAML 文件 → 环境变量。

除带前缀的环境变量外，还兼容文档化的裸变量：
USE_REDIS / REDIS_HOST / REDIS_PORT / SESSION_HISTORY_PROVIDER /
MEMORY_PROVIDER / AGENTSCOPE_SERVICES_CONFIG。
*/
package config
