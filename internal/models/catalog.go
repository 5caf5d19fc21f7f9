package models

// Challenge is a catalog entry used to build learn-site URLs
type Challenge struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	DashedName    string `json:"dashedName" yaml:"dashedName"`
	Block         string `json:"block" yaml:"block"`
	SuperBlock    string `json:"superBlock" yaml:"superBlock"`
	ChallengeType int    `json:"challengeType" yaml:"challengeType"`
}
