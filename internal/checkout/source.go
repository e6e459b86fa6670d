package checkout

// LineSource задаёт, откуда берутся позиции нового заказа: это либо
// FromCart, либо Direct.
type LineSource interface {
	isLineSource()
}

// FromCart списывает строки корзины. Без ids берутся все выбранные строки
// пользователя; с ids берутся ровно эти строки, и каждая должна быть выбрана.
type FromCart struct {
	LineIDs []int64
}

type DirectLine struct {
	ProductID int64
	Quantity  int
}

// Direct покупает перечисленные товары, не трогая корзину.
type Direct struct {
	Lines []DirectLine
}

func (FromCart) isLineSource() {}
func (Direct) isLineSource()   {}

// sourceLine описывает разобранную позицию, независимо от источника.
type sourceLine struct {
	productID  int64
	quantity   int
	cartLineID int64
}
