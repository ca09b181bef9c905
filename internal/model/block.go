package model

// Block 区块锚点缓存；一旦缓存永久可信
type Block struct {
	Hash string `json:"hash" gorm:"primaryKey;type:varchar(64)"`
	Time int64  `json:"time" gorm:"not null"` // unix seconds
}

func (Block) TableName() string { return "blocks" }
