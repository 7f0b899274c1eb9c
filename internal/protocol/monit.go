package protocol

import "encoding/xml"

// MonitStatus Monit `/_status?format=xml` 返回的状态文档（只保留需要的字段）
type MonitStatus struct {
	XMLName  xml.Name       `xml:"monit"`
	Server   *MonitServer   `xml:"server"`
	Platform *MonitPlatform `xml:"platform"`
	Services []MonitService `xml:"service"`
}

// MonitServer 服务端信息
type MonitServer struct {
	ID            string `xml:"id"`
	Version       string `xml:"version"`
	Uptime        int64  `xml:"uptime"` // 运行时间(秒)
	Poll          int    `xml:"poll"`
	LocalHostname string `xml:"localhostname"`
}

// MonitPlatform 平台信息
type MonitPlatform struct {
	Name    string `xml:"name"`
	Release string `xml:"release"`
	Machine string `xml:"machine"`
	CPU     int    `xml:"cpu"`
	Memory  int64  `xml:"memory"` // KB
}

// MonitService 服务项，type=5 为系统
type MonitService struct {
	Type   int          `xml:"type,attr"`
	Name   string       `xml:"name"`
	Status int          `xml:"status"`
	System *MonitSystem `xml:"system"`
}

// MonitSystem 系统资源
type MonitSystem struct {
	Load   *MonitLoad   `xml:"load"`
	CPU    *MonitCPU    `xml:"cpu"`
	Memory *MonitMemory `xml:"memory"`
	Swap   *MonitMemory `xml:"swap"`
}

// MonitLoad 负载
type MonitLoad struct {
	Avg01 string `xml:"avg01"`
	Avg05 string `xml:"avg05"`
	Avg15 string `xml:"avg15"`
}

// MonitCPU CPU 使用率，字段缺失时为 nil
type MonitCPU struct {
	User   *string `xml:"user"`
	System *string `xml:"system"`
	Guest  *string `xml:"guest"`
	Nice   *string `xml:"nice"`
	Wait   *string `xml:"wait"`
}

// MonitMemory 内存使用
type MonitMemory struct {
	Percent  *string `xml:"percent"`
	Kilobyte *string `xml:"kilobyte"`
}

// SystemService 返回第一个带 system 节点的服务
func (m *MonitStatus) SystemService() *MonitService {
	for i := range m.Services {
		if m.Services[i].System != nil {
			return &m.Services[i]
		}
	}
	return nil
}
