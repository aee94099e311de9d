package report

type Report struct {
	Probe *ProbeReport `json:"probe,omitempty"`
	Ipni  *IpniReport  `json:"ipni,omitempty"`
}
