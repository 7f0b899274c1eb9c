package models

import "fmt"

// Agent 被监控的 Monit 探针（启动时从配置加载，运行期间不变）
type Agent struct {
	Name     string `json:"name"`
	Address  string `json:"address"` // host:port
	Username string `json:"-"`
	Password string `json:"-"`
}

func (a Agent) String() string {
	return fmt.Sprintf("%s(%s)", a.Name, a.Address)
}
